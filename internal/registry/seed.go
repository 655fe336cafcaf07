package registry

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/late7/ai-doc-reader/internal/model"
)

// seedFile is the YAML fixture shape for seeding the registries.
type seedFile struct {
	Figures   []model.Figure   `yaml:"figures"`
	Questions []model.Question `yaml:"questions"`
}

// LoadSeedFile reads a YAML fixture of figures and questions.
func LoadSeedFile(path string) ([]model.Figure, []model.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "registry: read seed file")
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, nil, eris.Wrap(err, "registry: unmarshal seed file")
	}
	return seed.Figures, seed.Questions, nil
}

// Seed writes the given figures and questions into empty registries. A
// registry that already has entries is left alone.
func (r *Registry) Seed(ctx context.Context, figures []model.Figure, questions []model.Question) error {
	if len(figures) > 0 {
		snap, err := r.store.GetFigureSnapshot(ctx)
		if err != nil {
			return err
		}
		if len(snap.Figures) == 0 {
			if _, err := r.ReplaceFigures(ctx, snap.Revision, figures); err != nil {
				return eris.Wrap(err, "registry: seed figures")
			}
			zap.L().Info("registry: seeded figures", zap.Int("count", len(figures)))
		}
	}

	if len(questions) > 0 {
		snap, err := r.store.GetQuestionSnapshot(ctx)
		if err != nil {
			return err
		}
		if len(snap.Questions) == 0 {
			renumberQuestions(questions)
			if _, err := r.store.PutQuestionSnapshot(ctx, snap.Revision, questions); err != nil {
				return eris.Wrap(err, "registry: seed questions")
			}
			zap.L().Info("registry: seeded questions", zap.Int("count", len(questions)))
		}
	}

	return nil
}
