package fingerprint

// bboxArea returns the area of an [x1, y1, x2, y2] box, 0 when malformed.
func bboxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// SelectFace picks the face to describe: the highest detection score at or
// above minScore, the larger box on a tie. Faces without an embedding are
// ignored.
func SelectFace(faces []FaceDetection, minScore float64) (FaceDetection, bool) {
	var best FaceDetection
	found := false
	for _, f := range faces {
		if len(f.Embedding) == 0 || f.DetScore < minScore {
			continue
		}
		if !found ||
			f.DetScore > best.DetScore ||
			(f.DetScore == best.DetScore && bboxArea(f.BBox) > bboxArea(best.BBox)) {
			best = f
			found = true
		}
	}
	return best, found
}
