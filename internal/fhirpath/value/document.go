package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// Documents
// ============================================================================

// Document is a parsed source document shared by every lazy value derived
// from it. The decoded tree is never mutated after construction, so a single
// Document may back any number of concurrent evaluations.
type Document struct {
	root any
}

// ParseJSON decodes a JSON document. Numbers are kept as json.Number so that
// integer/decimal distinction and full precision survive decoding.
func ParseJSON(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("value: parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// NewDocument wraps an already-decoded JSON tree (map[string]any /
// []any / scalars). The tree must not be mutated afterwards.
func NewDocument(root any) *Document { return &Document{root: root} }

// Root returns the lazy value for the document root.
func (d *Document) Root() Value {
	return fromRaw(d, nil, d.root)
}

// resolve walks the raw tree along path. Missing structure returns nil.
func (d *Document) resolve(path Path) any {
	node := d.root
	for _, st := range path {
		switch cur := node.(type) {
		case map[string]any:
			if st.IsIndex {
				return nil
			}
			node = cur[st.Key]
		case []any:
			if !st.IsIndex || st.Index < 0 || st.Index >= len(cur) {
				return nil
			}
			node = cur[st.Index]
		default:
			return nil
		}
		if node == nil {
			return nil
		}
	}
	return node
}

// ============================================================================
// Paths
// ============================================================================

// Step is one navigation token: key-by-name or index-by-position.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path locates a node within a Document.
type Path []Step

// Child returns path extended by a key step. The returned path shares no
// appendable state with the receiver.
func (p Path) Child(key string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = Step{Key: key}
	return out
}

// At returns path extended by an index step.
func (p Path) At(i int) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = Step{Index: i, IsIndex: true}
	return out
}

// Equal reports step-wise path equality.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// String renders the path in dotted/indexed form.
func (p Path) String() string {
	var sb strings.Builder
	for _, st := range p {
		if st.IsIndex {
			sb.WriteByte('[')
			sb.WriteString(strconv.Itoa(st.Index))
			sb.WriteByte(']')
		} else {
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(st.Key)
		}
	}
	return sb.String()
}

// ============================================================================
// Lazy nodes
// ============================================================================

// LazyNode identifies an unmaterialized object or array node within a shared
// Document. Scalar extraction and child navigation never build the Object
// representation; Materialize does, once, on demand.
type LazyNode struct {
	doc  *Document
	path Path
}

// NewLazyNode builds a lazy reference. The path is owned by the node.
func NewLazyNode(doc *Document, path Path) *LazyNode {
	return &LazyNode{doc: doc, path: path}
}

// Doc returns the shared backing document.
func (n *LazyNode) Doc() *Document { return n.doc }

// Path returns the node's navigation path. Callers must not mutate it.
func (n *LazyNode) Path() Path { return n.path }

// Field navigates to a named child. Absent keys yield the empty collection.
// Array children flatten: each element becomes one collection member.
func (n *LazyNode) Field(name string) Collection {
	raw := n.doc.resolve(n.path)
	m, ok := raw.(map[string]any)
	if !ok {
		return Collection{}
	}
	child, ok := m[name]
	if !ok || child == nil {
		return Collection{}
	}
	base := n.path.Child(name)
	if arr, isArr := child.([]any); isArr {
		var out Collection
		for i, el := range arr {
			out = out.Append(fromRaw(n.doc, base.At(i), el))
		}
		return out
	}
	return Singleton(fromRaw(n.doc, base, child))
}

// Elements returns the members of an array node, or a singleton of the node
// itself for non-arrays.
func (n *LazyNode) Elements() Collection {
	raw := n.doc.resolve(n.path)
	arr, ok := raw.([]any)
	if !ok {
		if raw == nil {
			return Collection{}
		}
		return Singleton(NewLazy(n))
	}
	var out Collection
	for i, el := range arr {
		out = out.Append(fromRaw(n.doc, n.path.At(i), el))
	}
	return out
}

// FieldNames returns the object's keys in sorted-stable document order
// (encoding/json maps lose order; keys are sorted for determinism).
func (n *LazyNode) FieldNames() []string {
	raw := n.doc.resolve(n.path)
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return sortedKeys(m)
}

// materialize builds the Object representation. The object keeps the backing
// document and path so that it remains equal to the lazy original.
func (n *LazyNode) materialize() *ObjectNode {
	obj := &ObjectNode{
		Fields: make(map[string]Collection),
		doc:    n.doc,
		path:   n.path,
	}
	for _, name := range n.FieldNames() {
		obj.Names = append(obj.Names, name)
		obj.Fields[name] = n.Field(name)
	}
	return obj
}

// fromRaw converts a raw decoded JSON node into a Value. Scalars become
// typed values immediately; objects and arrays stay lazy.
func fromRaw(doc *Document, path Path, raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Value{}
	case bool:
		return NewBoolean(x)
	case string:
		return NewString(x)
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return NewInteger(i)
		}
		if v, err := NewDecimalFromString(string(x)); err == nil {
			return v
		}
		return NewString(string(x))
	case float64:
		// Trees decoded without UseNumber.
		if x == float64(int64(x)) {
			return NewInteger(int64(x))
		}
		v, _ := NewDecimalFromString(strconv.FormatFloat(x, 'f', -1, 64))
		return v
	case map[string]any, []any:
		return NewLazy(NewLazyNode(doc, path))
	default:
		return NewString(fmt.Sprintf("%v", x))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// ============================================================================
// Object nodes
// ============================================================================

// ObjectNode is the materialized keyed-map-of-collections representation.
// Objects built by materialization carry the backing document and path so
// identity equality matches the lazy original; free-standing objects compare
// by pointer.
type ObjectNode struct {
	Names  []string
	Fields map[string]Collection

	doc  *Document
	path Path
}

// NewObjectNode builds a free-standing object (no backing document).
func NewObjectNode(names []string, fields map[string]Collection) *ObjectNode {
	return &ObjectNode{Names: names, Fields: fields}
}
