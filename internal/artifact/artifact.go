package artifact

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"FXForecaster/internal/transform"
)

// Regressor is a fitted model mapping scaled features to a scaled close.
type Regressor interface {
	Predict(x []float64) float64
	NumFeatures() int
}

// Artifact pairs a model with the scaler it was trained through. Both come
// from the same training run and share Version. An Artifact is never edited
// after creation; a retrain produces a new one.
type Artifact struct {
	Name     string
	Version  string
	FittedAt time.Time
	Model    Regressor
	Scaler   *transform.ScalingParameters

	// Training window.
	Rows     int
	DataFrom time.Time
	DataTo   time.Time
}

// NewVersion returns a sortable, unique version id for a fit finished at t.
func NewVersion(t time.Time) string {
	return fmt.Sprintf("%s-%s", t.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

func (a *Artifact) String() string {
	if a == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s@%s (%d rows, %s..%s)", a.Name, a.Version, a.Rows,
		a.DataFrom.Format("2006-01-02"), a.DataTo.Format("2006-01-02"))
}
