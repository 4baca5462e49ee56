package card

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"

	"recall-backend/internal/model"
	"recall-backend/pkg/logger"

	"github.com/google/uuid"
)

var ErrInvalidArchive = errors.New("invalid apkg file: missing collection.anki2")

type Deck struct {
	Name  string
	Cards []model.Card
}

// ImportAPKG reads an Anki package far enough to verify it is one: the
// archive must contain collection.anki2. Note extraction from the embedded
// sqlite database is not implemented yet, so the returned deck holds
// placeholder cards describing the archive.
// TODO: parse collection.anki2 and map notes to cards.
func ImportAPKG(r io.ReaderAt, size int64, name string) (*Deck, error) {
	archive, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open apkg archive: %w", err)
	}

	names := make([]string, 0, len(archive.File))
	hasCollection := false
	for _, f := range archive.File {
		names = append(names, f.Name)
		if f.Name == "collection.anki2" {
			hasCollection = true
		}
	}

	if !hasCollection {
		return nil, ErrInvalidArchive
	}

	logger.Infof("imported apkg %s with %d entries", name, len(names))

	deckName := strings.TrimSuffix(name, ".apkg")
	return &Deck{
		Name: deckName,
		Cards: []model.Card{
			{
				ID:    uuid.New().String(),
				Front: "APKG import successful",
				Back:  fmt.Sprintf("Loaded %s with %d files including collection.anki2.", name, len(names)),
			},
			{
				ID:    uuid.New().String(),
				Front: "Files found",
				Back:  "Files in APKG: " + strings.Join(names, ", "),
			},
		},
	}, nil
}
