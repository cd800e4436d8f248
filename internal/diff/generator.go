package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Generator generates patch-style diffs between two file versions
type Generator struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewDiffGenerator creates a new diff generator
func NewDiffGenerator() *Generator {
	return &Generator{
		dmp: diffmatchpatch.New(),
	}
}

// GenerateUnifiedDiff is a package-level function for convenience
func GenerateUnifiedDiff(oldContent, newContent string) (string, int, int) {
	return NewDiffGenerator().GenerateUnifiedDiff(oldContent, newContent)
}

// GenerateUnifiedDiff returns the patch text turning oldContent into
// newContent, and the number of lines added and removed.
func (dg *Generator) GenerateUnifiedDiff(oldContent, newContent string) (string, int, int) {
	diffs := dg.dmp.DiffMain(oldContent, newContent, false)
	patches := dg.dmp.PatchMake(oldContent, diffs)
	diffText := dg.dmp.PatchToText(patches)

	added, removed := dg.countLines(oldContent, newContent)
	return diffText, added, removed
}

// countLines diffs line by line so a one-character edit counts as one line
// removed and one added.
func (dg *Generator) countLines(oldContent, newContent string) (int, int) {
	a, b, lines := dg.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dg.dmp.DiffCharsToLines(dg.dmp.DiffMain(a, b, false), lines)

	added, removed := 0, 0
	for _, d := range diffs {
		n := lineCount(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
