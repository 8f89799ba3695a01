package facematch

import (
	"encoding/json"
	"testing"
)

func TestDetection_HasFace(t *testing.T) {
	var nilDet *Detection
	if nilDet.HasFace() {
		t.Error("nil detection should not have a face")
	}
	if (&Detection{}).HasFace() {
		t.Error("detection without embedding should not have a face")
	}
	if !(&Detection{Embedding: []float32{}}).HasFace() {
		t.Error("detection with an (empty) embedding should report a face")
	}
}

func TestDetection_GeometryNoFace(t *testing.T) {
	box, landmarks := (*Detection)(nil).Geometry()
	if box != nil {
		t.Errorf("expected nil box, got %+v", box)
	}

	data, err := json.Marshal(landmarks)
	if err != nil {
		t.Fatalf("marshal landmarks: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("landmarks JSON = %s, want []", data)
	}
}

func TestDetection_UnmarshalPassThrough(t *testing.T) {
	body := `{"embedding":[1,0],"box":{"x":10,"y":20,"w":30,"h":40},"landmarks":[[11,21],[12,22]]}`

	var det Detection
	if err := json.Unmarshal([]byte(body), &det); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !det.HasFace() {
		t.Fatal("expected a face")
	}
	box, landmarks := det.Geometry()
	if box == nil || *box != (Box{X: 10, Y: 20, W: 30, H: 40}) {
		t.Errorf("unexpected box %+v", box)
	}
	if len(landmarks) != 2 || landmarks[1] != (Point{12, 22}) {
		t.Errorf("unexpected landmarks %v", landmarks)
	}
}
