package types

// FrameSample is one row of the `dumpsys gfxinfo` profile table (milliseconds)
type FrameSample struct {
	DrawMs    float64 `json:"drawMs"`
	PrepareMs float64 `json:"prepareMs"`
	ProcessMs float64 `json:"processMs"`
	ExecuteMs float64 `json:"executeMs"`
}

// Total is the whole frame time
func (f FrameSample) Total() float64 {
	return f.DrawMs + f.PrepareMs + f.ProcessMs + f.ExecuteMs
}
