package yolov4

import (
	"testing"

	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const background = -20

// nhwc builds a [rows, cols, anchors*(5+classes)] head filled with background
// logits.
func nhwc(rows, cols, anchors, classes int) []float32 {
	data := make([]float32, rows*cols*anchors*(5+classes))
	for i := range data {
		data[i] = background
	}
	return data
}

// hit writes a confident, centred candidate into the head.
func hit(data []float32, cols, anchors, classes, gy, gx, a, class int) {
	attrs := 5 + classes
	off := ((gy*cols+gx)*anchors + a) * attrs
	data[off+0] = 0
	data[off+1] = 0
	data[off+2] = 0
	data[off+3] = 0
	data[off+4] = 10
	data[off+5+class] = 10
}

// toAHWC rearranges an [H, W, A, attrs] buffer into [A, H, W, attrs].
func toAHWC(data []float32, rows, cols, anchors, attrs int) []float32 {
	out := make([]float32, len(data))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			for a := 0; a < anchors; a++ {
				src := ((y*cols+x)*anchors + a) * attrs
				dst := ((a*rows+y)*cols + x) * attrs
				copy(out[dst:dst+attrs], data[src:src+attrs])
			}
		}
	}
	return out
}

// toNCHW rearranges an [H, W, C] buffer into [C, H, W].
func toNCHW(data []float32, rows, cols, channels int) []float32 {
	out := make([]float32, len(data))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			for c := 0; c < channels; c++ {
				out[(c*rows+y)*cols+x] = data[(y*cols+x)*channels+c]
			}
		}
	}
	return out
}

func newTestModel(t *testing.T, anchors []Anchor, classes int) *YOLOv4 {
	t.Helper()
	m, err := NewModel(NewModelArgs{
		InputWidth:          64,
		InputHeight:         64,
		NumClasses:          classes,
		Anchors:             anchors,
		ConfidenceThreshold: 0.55,
		NMS:                 postprocess.NMSConfig{IoUThreshold: 0.35, ClassAware: true},
	})
	require.NoError(t, err)
	return m
}

func TestPostProcess_Layouts(t *testing.T) {
	anchors := []Anchor{{10, 10}, {20, 40}, {30, 30}}
	data := nhwc(2, 2, 3, 1)
	hit(data, 2, 3, 1, 1, 0, 1, 0)

	// cx = (0.5+0)/2*64 = 16, cy = (0.5+1)/2*64 = 48, w=20, h=40
	want := images.Rect{X1: 6, Y1: 28, X2: 26, Y2: 68}

	tests := []struct {
		name   string
		tensor Tensor
	}{
		{"NHWC", Tensor{Name: "out", Shape: []int64{1, 2, 2, 18}, Data: data}},
		{"NHWAC", Tensor{Name: "out", Shape: []int64{1, 2, 2, 3, 6}, Data: data}},
		{"NCHW", Tensor{Name: "out", Shape: []int64{1, 18, 2, 2}, Data: toNCHW(data, 2, 2, 18)}},
		{"NAHWC", Tensor{Name: "out", Shape: []int64{1, 3, 2, 2, 6}, Data: toAHWC(data, 2, 2, 3, 6)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, anchors, 1)
			results, err := m.PostProcess([]Tensor{tt.tensor})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, want, results[0].Box)
			assert.Equal(t, 0, results[0].Class)
			assert.InDelta(t, 0.9999, results[0].Score, 0.001)
		})
	}
}

func TestDecode_FinestGridTakesSmallestAnchors(t *testing.T) {
	anchors := []Anchor{{1, 1}, {2, 2}, {3, 3}, {16, 8}, {32, 32}, {48, 48}}

	fine := nhwc(4, 4, 3, 1)
	coarse := nhwc(2, 2, 3, 1)
	hit(coarse, 2, 3, 1, 0, 0, 0, 0)

	m := newTestModel(t, anchors, 1)
	// Pass the coarse head first; ordering must not matter.
	results, err := m.Decode([]Tensor{
		{Name: "coarse", Shape: []int64{1, 2, 2, 18}, Data: coarse},
		{Name: "fine", Shape: []int64{1, 4, 4, 18}, Data: fine},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Coarse head uses anchors[3:]; anchor 0 there is 16x8 centred at (16,16).
	assert.Equal(t, images.Rect{X1: 8, Y1: 12, X2: 24, Y2: 20}, results[0].Box)
}

func TestDecode_BelowThreshold(t *testing.T) {
	data := nhwc(2, 2, 3, 1)
	// Objectness logit 0 gives 0.5, under the 0.55 threshold.
	data[4] = 0
	data[5] = 10

	m := newTestModel(t, []Anchor{{10, 10}, {20, 40}, {30, 30}}, 1)
	results, err := m.PostProcess([]Tensor{{Shape: []int64{1, 2, 2, 18}, Data: data}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDecode_ScoreBelowThreshold(t *testing.T) {
	data := nhwc(1, 1, 1, 2)
	// Objectness passes, but no class lifts the product over 0.55.
	data[4] = 10
	data[5] = 0
	data[6] = 0

	m := newTestModel(t, []Anchor{{10, 10}}, 2)
	results, err := m.Decode([]Tensor{{Shape: []int64{1, 1, 1, 7}, Data: data}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDecode_PicksBestClass(t *testing.T) {
	data := nhwc(1, 1, 1, 3)
	data[4] = 10
	data[5+2] = 5
	data[5+1] = 2

	m := newTestModel(t, []Anchor{{10, 10}}, 3)
	results, err := m.Decode([]Tensor{{Shape: []int64{1, 1, 1, 8}, Data: data}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Class)
}

func TestDecode_Errors(t *testing.T) {
	m := newTestModel(t, []Anchor{{10, 10}, {20, 40}, {30, 30}}, 1)

	tests := []struct {
		name    string
		outputs []Tensor
	}{
		{"no outputs", nil},
		{"anchors do not split", []Tensor{
			{Shape: []int64{1, 1, 1, 18}, Data: make([]float32, 18)},
			{Shape: []int64{1, 1, 1, 18}, Data: make([]float32, 18)},
		}},
		{"data shorter than shape", []Tensor{{Shape: []int64{1, 2, 2, 18}, Data: make([]float32, 10)}}},
		{"wrong channel count", []Tensor{{Shape: []int64{1, 2, 2, 7}, Data: make([]float32, 28)}}},
		{"dynamic dimension", []Tensor{{Shape: []int64{-1, 2, 2, 18}, Data: make([]float32, 72)}}},
		{"batch of two", []Tensor{{Shape: []int64{2, 1, 1, 18}, Data: make([]float32, 36)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Decode(tt.outputs)
			assert.Error(t, err)
		})
	}
}

func TestParseAnchors(t *testing.T) {
	anchors, err := ParseAnchors([]float64{12, 16, 19, 36, 40, 28, 36, 75, 76, 55, 72, 146, 142, 110, 192, 243, 459, 401})
	require.NoError(t, err)
	require.Len(t, anchors, 9)
	assert.Equal(t, Anchor{W: 12, H: 16}, anchors[0])
	assert.Equal(t, Anchor{W: 459, H: 401}, anchors[8])

	_, err = ParseAnchors([]float64{1, 2, 3})
	assert.Error(t, err)
	_, err = ParseAnchors(nil)
	assert.Error(t, err)
}

func TestNewModel_Validation(t *testing.T) {
	_, err := NewModel(NewModelArgs{InputWidth: 0, InputHeight: 416, NumClasses: 1, Anchors: []Anchor{{1, 1}}})
	assert.Error(t, err)
	_, err = NewModel(NewModelArgs{InputWidth: 416, InputHeight: 416, NumClasses: 0, Anchors: []Anchor{{1, 1}}})
	assert.Error(t, err)
	_, err = NewModel(NewModelArgs{InputWidth: 416, InputHeight: 416, NumClasses: 1})
	assert.Error(t, err)
}
