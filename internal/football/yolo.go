package football

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/gridiron-data/openscore.report/internal/monitoring"
)

// YOLODetector runs an ONNX-exported YOLO model through OpenCV's DNN
// module. It implements Detector.
type YOLODetector struct {
	net        gocv.Net
	inputSize  int
	confidence float32
	nmsIoU     float32
}

// YOLOConfig controls model loading and detection filtering.
type YOLOConfig struct {
	ModelPath  string
	InputSize  int
	Confidence float32
	NMSIoU     float32
}

func DefaultYOLOConfig(modelPath string) YOLOConfig {
	return YOLOConfig{
		ModelPath:  modelPath,
		InputSize:  640,
		Confidence: 0.25,
		NMSIoU:     0.45,
	}
}

// NewYOLODetector loads the ONNX model. Prefers CUDA when OpenCV was built
// with it, otherwise falls back to CPU.
func NewYOLODetector(cfg YOLOConfig) (*YOLODetector, error) {
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load model %s: empty network", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err == nil {
		if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
			monitoring.Logf("yolo: CUDA target unavailable, using CPU: %v", err)
			net.SetPreferableBackend(gocv.NetBackendDefault)
			net.SetPreferableTarget(gocv.NetTargetCPU)
		}
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	return &YOLODetector{
		net:        net,
		inputSize:  cfg.InputSize,
		confidence: cfg.Confidence,
		nmsIoU:     cfg.NMSIoU,
	}, nil
}

func (d *YOLODetector) Close() error {
	return d.net.Close()
}

// Detect runs one inference pass and returns detections in frame pixel
// coordinates. Output layout follows YOLOv8: a [1 x (4+classes) x anchors]
// tensor with xywh box centers in letterboxed input space.
func (d *YOLODetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	frameW := float64(frame.Cols())
	frameH := float64(frame.Rows())
	scale := float64(d.inputSize) / frameW
	if s := float64(d.inputSize) / frameH; s < scale {
		scale = s
	}
	padX := (float64(d.inputSize) - frameW*scale) / 2
	padY := (float64(d.inputSize) - frameH*scale) / 2

	letterboxed := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(114, 114, 114, 0), d.inputSize, d.inputSize, gocv.MatTypeCV8UC3)
	defer letterboxed.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(frame, &resized, image.Pt(int(frameW*scale), int(frameH*scale)), 0, 0, gocv.InterpolationLinear)
	roi := letterboxed.Region(image.Rect(int(padX), int(padY), int(padX)+resized.Cols(), int(padY)+resized.Rows()))
	resized.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(letterboxed, 1.0/255.0,
		image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("detect: unexpected output rank %d", len(dims))
	}
	rows := dims[1] // 4 + numClasses
	cols := dims[2] // anchors
	numClasses := rows - 4

	reshaped := output.Reshape(1, rows)
	defer reshaped.Close()

	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	for a := 0; a < cols; a++ {
		bestClass := 0
		bestScore := float32(0)
		for c := 0; c < numClasses; c++ {
			if s := reshaped.GetFloatAt(4+c, a); s > bestScore {
				bestScore = s
				bestClass = c
			}
		}
		if bestScore < d.confidence {
			continue
		}

		cx := float64(reshaped.GetFloatAt(0, a))
		cy := float64(reshaped.GetFloatAt(1, a))
		w := float64(reshaped.GetFloatAt(2, a))
		h := float64(reshaped.GetFloatAt(3, a))

		x1 := (cx - w/2 - padX) / scale
		y1 := (cy - h/2 - padY) / scale
		x2 := (cx + w/2 - padX) / scale
		y2 := (cy + h/2 - padY) / scale

		boxes = append(boxes, image.Rect(int(x1), int(y1), int(x2), int(y2)))
		confidences = append(confidences, bestScore)
		classIDs = append(classIDs, bestClass)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, confidences, d.confidence, d.nmsIoU)
	detections := make([]Detection, 0, len(keep))
	for _, i := range keep {
		b := boxes[i]
		detections = append(detections, Detection{
			BBox:       BBox{float64(b.Min.X), float64(b.Min.Y), float64(b.Max.X), float64(b.Max.Y)},
			Confidence: float64(confidences[i]),
			ClassID:    classIDs[i],
			ClassName:  ClassName(classIDs[i]),
		})
	}
	return detections, nil
}
