package layout

import (
	"fmt"
)

type Orientation string

const (
	Landscape Orientation = "landscape"
	Portrait  Orientation = "portrait"
)

// Valid reports whether o is one of the two supported orientations.
func (o Orientation) Valid() bool {
	return o == Landscape || o == Portrait
}

// CanvasSize returns the logical canvas size in pixels.
func (o Orientation) CanvasSize() (width, height float64) {
	if o == Portrait {
		return 600, 900
	}
	return 900, 600
}

// Document is the ordered element collection of a certificate layout plus the
// page attributes. Index order is z-order: later elements are drawn on top.
// Elements are addressed by id; Update is the only way to change one.
type Document struct {
	Orientation     Orientation
	BackgroundImage string
	elements        []Element
}

func NewDocument(orientation Orientation, backgroundImage string) *Document {
	if !orientation.Valid() {
		orientation = Landscape
	}
	return &Document{Orientation: orientation, BackgroundImage: backgroundImage}
}

// Elements returns a copy of the element list in z-order.
func (d *Document) Elements() []Element {
	out := make([]Element, len(d.elements))
	for i, e := range d.elements {
		out[i] = cloneElement(e)
	}
	return out
}

func (d *Document) Len() int { return len(d.elements) }

// Index returns the z-order position of id, or -1.
func (d *Document) Index(id string) int { return indexOf(d.elements, id) }

func (d *Document) Get(id string) (Element, bool) {
	i := d.Index(id)
	if i < 0 {
		return nil, false
	}
	return cloneElement(d.elements[i]), true
}

// Add appends e on top of the stack.
func (d *Document) Add(e Element) error {
	if e == nil || e.ElementID() == "" {
		return fmt.Errorf("add element: %w", ErrElementMissing)
	}
	if d.Index(e.ElementID()) >= 0 {
		return fmt.Errorf("add element %s: %w", e.ElementID(), ErrDuplicateID)
	}
	d.elements = append(d.elements, cloneElement(e))
	return nil
}

// Update replaces the element carrying e's id in place. The variant cannot
// change.
func (d *Document) Update(e Element) error {
	i := d.Index(e.ElementID())
	if i < 0 {
		return fmt.Errorf("update element %s: %w", e.ElementID(), ErrElementMissing)
	}
	if d.elements[i].Kind() != e.Kind() {
		return fmt.Errorf("update element %s: %w", e.ElementID(), ErrKindChanged)
	}
	d.elements[i] = cloneElement(e)
	return nil
}

func (d *Document) Delete(id string) error {
	i := d.Index(id)
	if i < 0 {
		return fmt.Errorf("delete element %s: %w", id, ErrElementMissing)
	}
	d.elements = append(d.elements[:i:i], d.elements[i+1:]...)
	return nil
}

func (d *Document) BringToFront(id string) bool {
	var ok bool
	d.elements, ok = BringToFront(d.elements, id)
	return ok
}

func (d *Document) SendToBack(id string) bool {
	var ok bool
	d.elements, ok = SendToBack(d.elements, id)
	return ok
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := &Document{Orientation: d.Orientation, BackgroundImage: d.BackgroundImage}
	c.elements = d.Elements()
	return c
}

// Map replaces every element with fn's result. fn must keep ids and kinds.
func (d *Document) Map(fn func(Element) Element) error {
	next := make([]Element, len(d.elements))
	for i, e := range d.elements {
		n := fn(cloneElement(e))
		if n.ElementID() != e.ElementID() || n.Kind() != e.Kind() {
			return fmt.Errorf("map element %s: %w", e.ElementID(), ErrKindChanged)
		}
		next[i] = n
	}
	d.elements = next
	return nil
}
