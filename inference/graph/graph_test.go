package graph

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func tensorInfo(name string, dt ort.TensorElementDataType, dims ...int64) ort.InputOutputInfo {
	return ort.InputOutputInfo{
		Name:         name,
		OrtValueType: ort.ONNXTypeTensor,
		Dimensions:   ort.NewShape(dims...),
		DataType:     dt,
	}
}

var yoloOutputs = []ort.InputOutputInfo{
	tensorInfo("conv2d_93", ort.TensorElementDataTypeFloat, 1, 52, 52, 18),
	tensorInfo("conv2d_101", ort.TensorElementDataTypeFloat, 1, 26, 26, 18),
	tensorInfo("conv2d_109", ort.TensorElementDataTypeFloat, 1, 13, 13, 18),
}

func TestRequireSingleAccelerator(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []ort.InputOutputInfo
		wantErr bool
	}{
		{
			name:   "one image input",
			inputs: []ort.InputOutputInfo{tensorInfo("input_1", ort.TensorElementDataTypeFloat, 1, 416, 416, 3)},
		},
		{
			name: "image input plus host input",
			inputs: []ort.InputOutputInfo{
				tensorInfo("images", ort.TensorElementDataTypeUint8, 1, 3, 416, 416),
				tensorInfo("image_shape", ort.TensorElementDataTypeFloat, 1, 2),
			},
		},
		{
			name:    "no image inputs",
			inputs:  []ort.InputOutputInfo{tensorInfo("features", ort.TensorElementDataTypeFloat, 1, 128)},
			wantErr: true,
		},
		{
			name: "two image inputs",
			inputs: []ort.InputOutputInfo{
				tensorInfo("left", ort.TensorElementDataTypeFloat, 1, 3, 416, 416),
				tensorInfo("right", ort.TensorElementDataTypeFloat, 1, 3, 416, 416),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Graph{Path: "fire.onnx", Name: "fire", Inputs: tt.inputs, Outputs: yoloOutputs}
			sub, err := g.RequireSingleAccelerator()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrSubgraphCount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DeviceAccelerator, sub.Device)
			assert.Len(t, sub.Inputs, 1)
			assert.Equal(t, []string{"conv2d_93", "conv2d_101", "conv2d_109"}, sub.OutputNames())
		})
	}
}

func TestSubgraphs_Partition(t *testing.T) {
	g := &Graph{
		Name: "fire",
		Inputs: []ort.InputOutputInfo{
			tensorInfo("images", ort.TensorElementDataTypeFloat, 1, 3, 416, 416),
			tensorInfo("image_shape", ort.TensorElementDataTypeFloat, 1, 2),
			tensorInfo("scale", ort.TensorElementDataTypeFloat, 1),
		},
		Outputs: yoloOutputs,
	}

	subgraphs := g.Subgraphs()
	require.Len(t, subgraphs, 2)
	assert.Equal(t, "fire/images", subgraphs[0].Name)
	assert.Equal(t, DeviceAccelerator, subgraphs[0].Device)
	assert.Equal(t, DeviceCPU, subgraphs[1].Device)
	assert.Equal(t, []string{"image_shape", "scale"}, subgraphs[1].InputNames())
	assert.Empty(t, subgraphs[1].Outputs)
}

func TestIsImageInput(t *testing.T) {
	assert.True(t, IsImageInput(tensorInfo("x", ort.TensorElementDataTypeFloat, 1, 3, 8, 8)))
	assert.True(t, IsImageInput(tensorInfo("x", ort.TensorElementDataTypeUint8, -1, 8, 8, 3)))
	assert.False(t, IsImageInput(tensorInfo("x", ort.TensorElementDataTypeInt64, 1, 3, 8, 8)))
	assert.False(t, IsImageInput(tensorInfo("x", ort.TensorElementDataTypeFloat, 3, 8, 8)))

	seq := tensorInfo("x", ort.TensorElementDataTypeFloat, 1, 3, 8, 8)
	seq.OrtValueType = ort.ONNXTypeSequence
	assert.False(t, IsImageInput(seq))
}
