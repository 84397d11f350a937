package rpc

import "fmt"

// variantSpec is one entry of the builder's method-name lookup table. It
// holds only the optional auto-bool field; Build sets the variant name on the
// message itself.
type variantSpec struct {
	autoBoolField string
}

// Builder replaces the original's attribute-access interception (constructing
// an RPC message by attribute access against the schema's discriminated
// union, spec §9) with an explicit lookup table filled through Register.
// It never intercepts arbitrary attribute access — every valid method name is
// registered before Build is called for it.
type Builder struct {
	variants map[string]variantSpec
}

// NewBuilder returns an empty Builder; call Register for each variant the
// caller's schema supports.
func NewBuilder() *Builder {
	return &Builder{variants: make(map[string]variantSpec)}
}

// Register adds one discriminated-union variant. autoBoolField, if non-empty,
// names the boolean field that Build sets to true when called with no
// arguments — mirroring the original's auto-enabled bool field that shares
// the variant's name.
func (b *Builder) Register(method string, autoBoolField string) {
	b.variants[method] = variantSpec{autoBoolField: autoBoolField}
}

// Build constructs a GenericMessage for the named variant. If args is empty
// and the variant declared an auto-bool field, that field is set to true —
// otherwise args is used verbatim.
func (b *Builder) Build(method string, args map[string]any) (*GenericMessage, error) {
	spec, ok := b.variants[method]
	if !ok {
		return nil, fmt.Errorf("rpc: unknown call variant %q", method)
	}

	if len(args) == 0 && spec.autoBoolField != "" {
		args = map[string]any{spec.autoBoolField: true}
	}

	return &GenericMessage{Variant: method, Args: args}, nil
}
