// hatchdb_stress hammers a single hash index from many goroutines:
// concurrent inserters over disjoint key ranges, readers over the whole
// range, then a structural integrity check.
package main

import (
	"flag"
	"os"

	"hatchdb/pkg/hash"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.New()

func main() {
	dbFlag := flag.String("db", "data/stress", "index file")
	writersFlag := flag.Int("writers", 8, "number of concurrent inserters")
	readersFlag := flag.Int("readers", 4, "number of concurrent readers")
	opsFlag := flag.Int64("n", 10000, "insertions per writer")
	capacityFlag := flag.Int64("capacity", 0, "bucket capacity (0 = page maximum)")
	flag.Parse()

	index, err := hash.OpenTableWithCapacity(*dbFlag, *capacityFlag)
	if err != nil {
		log.Fatal(err)
	}
	defer os.Remove(*dbFlag)

	perWriter := *opsFlag
	total := int64(*writersFlag) * perWriter

	var group errgroup.Group
	for w := 0; w < *writersFlag; w++ {
		base := int64(w) * perWriter
		group.Go(func() error {
			for key := base; key < base+perWriter; key++ {
				if err := index.Insert(key, key*2); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for r := 0; r < *readersFlag; r++ {
		group.Go(func() error {
			for key := int64(0); key < total; key++ {
				// Concurrent with the writers, so absence is fine; a found
				// entry must carry the value its writer inserted.
				values, err := index.Find(key)
				if err != nil {
					return err
				}
				for _, value := range values {
					if value != key*2 {
						log.Fatalf("torn read: key %d has value %d", key, value)
					}
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}

	if err := index.VerifyIntegrity(); err != nil {
		log.WithError(err).Fatal("integrity check failed")
	}
	depth, err := index.GetTable().GetDepth()
	if err != nil {
		log.Fatal(err)
	}
	log.WithFields(logrus.Fields{
		"inserted":    total,
		"globalDepth": depth,
	}).Info("stress run complete")

	if err := index.Close(); err != nil {
		log.Fatal(err)
	}
}
