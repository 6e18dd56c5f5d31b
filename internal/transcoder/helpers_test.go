package transcoder

import "uniquify-worker/pkg/models"

func geometry() models.SourceGeometry {
	return models.SourceGeometry{Width: 640, Height: 360, DurationSeconds: 4, SampleRate: 44100}
}

func modsWithSpeed() models.ModificationSet {
	speed := 1.02
	return models.ModificationSet{SpeedFactor: &speed}
}
