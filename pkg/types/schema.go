package types

// Topology is the physical layout the host engine must have: one descriptor
// per collection, ordered by collection name.
type Topology []CollectionDescriptor

// CollectionDescriptor describes one host collection.
type CollectionDescriptor struct {
	// Name is the collection (table) name
	Name string `json:"name" yaml:"name"`

	// PrimaryKeyPath is the record field holding the primary key
	PrimaryKeyPath string `json:"primary_key_path" yaml:"primary_key_path"`

	// AutoIncrement makes the host generate numeric keys when absent
	AutoIncrement bool `json:"auto_increment" yaml:"auto_increment"`

	// Indexes lists secondary indexes in column declaration order
	Indexes []IndexDescriptor `json:"indexes" yaml:"indexes"`
}

// IndexDescriptor describes one secondary index on a collection.
type IndexDescriptor struct {
	// Name is the index name; arkdb always names an index after its column
	Name string `json:"name" yaml:"name"`

	// KeyPath is the record field the index is keyed on
	KeyPath string `json:"key_path" yaml:"key_path"`

	// Unique indicates whether the index enforces uniqueness
	Unique bool `json:"unique" yaml:"unique"`
}

// Collection returns the descriptor with the given name.
func (t Topology) Collection(name string) (CollectionDescriptor, bool) {
	for _, c := range t {
		if c.Name == name {
			return c, true
		}
	}
	return CollectionDescriptor{}, false
}

// Names returns collection names in topology order.
func (t Topology) Names() []string {
	out := make([]string, len(t))
	for i, c := range t {
		out[i] = c.Name
	}
	return out
}

// Index returns the named index descriptor.
func (c CollectionDescriptor) Index(name string) (IndexDescriptor, bool) {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexDescriptor{}, false
}

// HasKeyPath reports whether path is the primary key or a declared index.
func (c CollectionDescriptor) HasKeyPath(path string) bool {
	if path == c.PrimaryKeyPath {
		return true
	}
	_, ok := c.Index(path)
	return ok
}

// Equal reports whether two descriptors describe the same layout.
func (c CollectionDescriptor) Equal(o CollectionDescriptor) bool {
	if c.Name != o.Name || c.PrimaryKeyPath != o.PrimaryKeyPath || c.AutoIncrement != o.AutoIncrement {
		return false
	}
	if len(c.Indexes) != len(o.Indexes) {
		return false
	}
	for i := range c.Indexes {
		if c.Indexes[i] != o.Indexes[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two topologies are identical, including order.
func (t Topology) Equal(o Topology) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !t[i].Equal(o[i]) {
			return false
		}
	}
	return true
}
