package buffer

// Element codec: pure conversion functions between supported element
// types. All conversions follow Go's numeric conversion semantics:
// float-to-integer conversions truncate toward zero, narrowing
// conversions may lose precision or overflow, and none of them fail.

// Convert casts v from element type S to element type D.
func Convert[S, D Element](v S) D {
	return D(v)
}

// ConvertSlice converts every element of src into a freshly allocated
// slice of the destination type.
func ConvertSlice[S, D Element](src []S) []D {
	dst := make([]D, len(src))
	for i, v := range src {
		dst[i] = D(v)
	}
	return dst
}
