package layout

// BringToFront moves the element with the given id one step toward the front
// by swapping it with its successor. The result is a new slice; elems is not
// modified. An empty id, an unknown id or an element already in front leave
// the order unchanged and report false.
func BringToFront(elems []Element, id string) ([]Element, bool) {
	i := indexOf(elems, id)
	if i < 0 || i == len(elems)-1 {
		return elems, false
	}
	return swapped(elems, i, i+1), true
}

// SendToBack swaps the element with its predecessor.
func SendToBack(elems []Element, id string) ([]Element, bool) {
	i := indexOf(elems, id)
	if i <= 0 {
		return elems, false
	}
	return swapped(elems, i, i-1), true
}

func indexOf(elems []Element, id string) int {
	if id == "" {
		return -1
	}
	for i, e := range elems {
		if e.ElementID() == id {
			return i
		}
	}
	return -1
}

func swapped(elems []Element, i, j int) []Element {
	out := make([]Element, len(elems))
	copy(out, elems)
	out[i], out[j] = out[j], out[i]
	return out
}
