//go:build integration
// +build integration

package classify

import (
	"github.com/swdee/go-rknnconvert/npu"
	"github.com/swdee/go-rknnconvert/preprocess"
	"os"
	"testing"
)

func TestClassifyFile(t *testing.T) {

	modelFile := os.Getenv("RKNN_MODEL")

	if modelFile == "" {
		t.Fatalf("No Model file provided in RKNN_MODEL")
	}

	imgFile := os.Getenv("RKNN_IMAGE")

	if imgFile == "" {
		t.Fatalf("No Image file provided in RKNN_IMAGE")
	}

	rt, err := npu.Open(modelFile, npu.NPUCoreAuto)

	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	defer rt.Close()

	c, err := New(rt, preprocess.DefaultLetterboxOptions())

	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	defer c.Close()

	res, err := c.File(imgFile)

	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}

	sum := 0.0

	for i, p := range res.Classes.Probs {

		if p < 0 || p > 1 {
			t.Errorf("class %d: probability %v out of [0,1]", i, p)
		}

		sum += p
	}

	if sum < 0.999 || sum > 1.001 {
		t.Errorf("probabilities sum to %v, expected 1", sum)
	}

	best := res.Classes.Best()

	if best.LabelIndex < 0 || best.LabelIndex >= len(res.Classes.Probs) {
		t.Errorf("best label index %d out of range", best.LabelIndex)
	}

	if res.Elapsed <= 0 {
		t.Errorf("expected inference time to be recorded")
	}

	if _, err := c.File("missing.jpg"); err == nil {
		t.Errorf("expected error reading missing image")
	}
}
