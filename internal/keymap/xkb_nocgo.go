//go:build !cgo || !linux

package keymap

// XKBCompiler is unavailable without cgo; every compile fails as if the
// backend could not start, so devices run without a keymap.
type XKBCompiler struct{}

// NewXKBCompiler returns a compiler that always fails.
func NewXKBCompiler() *XKBCompiler {
	return &XKBCompiler{}
}

// Available reports whether this build carries the libxkbcommon backend.
func Available() bool {
	return false
}

func (XKBCompiler) Compile(Descriptor) (Layout, error) {
	return nil, ErrContextCreationFailed
}

func (XKBCompiler) CompileText(string) (Layout, error) {
	return nil, ErrContextCreationFailed
}
