// Package list implements a doubly-linked list used by the pager's
// free/unpinned/pinned page bookkeeping.
package list

// List is a doubly-linked list of values of type T.
type List[T any] struct {
	head *Link[T]
	tail *Link[T]
}

// NewList constructs an empty list.
func NewList[T any]() *List[T] {
	return &List[T]{}
}

// PeekHead returns the link at the front of the list, or nil if empty.
func (list *List[T]) PeekHead() *Link[T] {
	return list.head
}

// PeekTail returns the link at the back of the list, or nil if empty.
func (list *List[T]) PeekTail() *Link[T] {
	return list.tail
}

// PushHead adds a value to the front of the list and returns its link.
func (list *List[T]) PushHead(value T) *Link[T] {
	newlink := &Link[T]{list: list, next: list.head, value: value}
	if list.head != nil {
		list.head.prev = newlink
	}
	list.head = newlink
	if list.tail == nil {
		list.tail = newlink
	}
	return newlink
}

// PushTail adds a value to the back of the list and returns its link.
func (list *List[T]) PushTail(value T) *Link[T] {
	newlink := &Link[T]{list: list, prev: list.tail, value: value}
	if list.tail != nil {
		list.tail.next = newlink
	}
	list.tail = newlink
	if list.head == nil {
		list.head = newlink
	}
	return newlink
}

// Find returns the first link whose value satisfies f, or nil.
func (list *List[T]) Find(f func(*Link[T]) bool) *Link[T] {
	for cur := list.head; cur != nil; cur = cur.next {
		if f(cur) {
			return cur
		}
	}
	return nil
}

// Map applies f to every link in the list, front to back.
func (list *List[T]) Map(f func(*Link[T])) {
	for cur := list.head; cur != nil; cur = cur.next {
		f(cur)
	}
}

// Link is one element of a List.
type Link[T any] struct {
	list  *List[T]
	prev  *Link[T]
	next  *Link[T]
	value T
}

// GetList returns the list this link currently belongs to.
func (link *Link[T]) GetList() *List[T] {
	return link.list
}

// GetValue returns the value stored in this link.
func (link *Link[T]) GetValue() T {
	return link.value
}

// GetPrev returns the previous link, or nil.
func (link *Link[T]) GetPrev() *Link[T] {
	return link.prev
}

// GetNext returns the next link, or nil.
func (link *Link[T]) GetNext() *Link[T] {
	return link.next
}

// PopSelf removes this link from its list.
func (link *Link[T]) PopSelf() {
	if link.prev != nil {
		link.prev.next = link.next
	} else if link.list.head == link {
		link.list.head = link.next
	}
	if link.next != nil {
		link.next.prev = link.prev
	} else if link.list.tail == link {
		link.list.tail = link.prev
	}
	link.prev = nil
	link.next = nil
	link.list = nil
}
