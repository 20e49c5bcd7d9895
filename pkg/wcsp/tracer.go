package wcsp

// SearchPosition describes a node of the branch and bound tree.
type SearchPosition interface {
	Depth() int
	Variable() string
	Value() int
	Lb() Cost
	Ub() Cost
	Err() error
}

type Tracer interface {
	Trace(p SearchPosition)
}
