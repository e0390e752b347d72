package jsonvalue

// Walk visits every value under root in document order (pre-order) using an
// explicit stack. visit returns false to skip a node's children.
func Walk(root *Value, visit func(*Value) bool) {
	if root == nil {
		return
	}
	stack := []*Value{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(n) {
			continue
		}
		switch n.Kind {
		case Array:
			for i := len(n.Items) - 1; i >= 0; i-- {
				stack = append(stack, n.Items[i])
			}
		case Object:
			for i := len(n.Members) - 1; i >= 0; i-- {
				stack = append(stack, n.Members[i].Value)
			}
		}
	}
}

// FindObjects returns every object matching pred, in document order. Matched
// objects are not descended into, so a listing's nested "seller" object is
// never reported as a listing of its own.
func FindObjects(root *Value, pred func(*Value) bool) []*Value {
	var out []*Value
	Walk(root, func(n *Value) bool {
		if n.Kind == Object && pred(n) {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

// FindArray returns the first array whose items are all objects matching
// pred (and which has at least one item).
func FindArray(root *Value, pred func(*Value) bool) *Value {
	var found *Value
	Walk(root, func(n *Value) bool {
		if found != nil {
			return false
		}
		if n.Kind == Array && len(n.Items) > 0 {
			all := true
			for _, it := range n.Items {
				if it.Kind != Object || !pred(it) {
					all = false
					break
				}
			}
			if all {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// FindKey returns the first value stored under any of keys.
func FindKey(root *Value, keys ...string) *Value {
	var found *Value
	Walk(root, func(n *Value) bool {
		if found != nil {
			return false
		}
		if n.Kind == Object {
			for _, k := range keys {
				if c := n.Get(k); c != nil && c.Kind != Null {
					found = c
					return false
				}
			}
		}
		return true
	})
	return found
}

// HasAny reports whether obj owns any of keys.
func HasAny(obj *Value, keys ...string) bool {
	for _, k := range keys {
		if obj.Has(k) {
			return true
		}
	}
	return false
}

// First returns the first non-null member among keys.
func First(obj *Value, keys ...string) *Value {
	for _, k := range keys {
		if c := obj.Get(k); c != nil && c.Kind != Null {
			return c
		}
	}
	return nil
}
