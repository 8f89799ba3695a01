// Package facematch holds the face detection types handed over by the upstream
// detector and the label normalization shared between CLI and web handlers.
package facematch

// Box is a face bounding box in source image pixels, as reported by the detector.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Point is a single 2D landmark in source image pixels.
type Point [2]int

// Detection is the output of the upstream detection and embedding step.
// A "no face" result has a nil Embedding, a nil Box and no landmarks.
type Detection struct {
	Embedding []float32 `json:"embedding"`
	Box       *Box      `json:"box"`
	Landmarks []Point   `json:"landmarks"`
}

// HasFace reports whether the detector produced an embedding.
func (d *Detection) HasFace() bool {
	return d != nil && d.Embedding != nil
}

// Geometry returns the box and landmarks to echo back to the caller.
// Landmarks are never nil so they serialize as an empty list.
func (d *Detection) Geometry() (*Box, []Point) {
	if d == nil {
		return nil, []Point{}
	}
	landmarks := d.Landmarks
	if landmarks == nil {
		landmarks = []Point{}
	}
	return d.Box, landmarks
}
