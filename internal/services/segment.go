package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Lllllllleong/docinsight/internal/models"
	"github.com/Lllllllleong/docinsight/internal/pdftext"
)

// snapRadius is how far, in characters, an estimated page boundary may move
// to land on a paragraph break.
const snapRadius = 250

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// SegmentPages splits flattened PDF text into pages. Explicit page breaks are
// used when they yield at least reportedPageCount pieces; otherwise the text is
// cut into reportedPageCount equal windows whose inner boundaries snap to the
// nearest blank line. Empty pages are dropped and the survivors numbered 1..n.
func SegmentPages(text string, reportedPageCount int) []models.Page {
	if reportedPageCount < 1 {
		reportedPageCount = 1
	}

	pieces := strings.Split(text, pdftext.PageBreak)
	if len(pieces) < reportedPageCount {
		pieces = proportionalSplit(strings.ReplaceAll(text, pdftext.PageBreak, "\n\n"), reportedPageCount)
	} else if len(pieces) > reportedPageCount {
		tail := strings.Join(pieces[reportedPageCount-1:], "\n\n")
		pieces = append(pieces[:reportedPageCount-1], tail)
	}

	pages := make([]models.Page, 0, len(pieces))
	for _, p := range pieces {
		content := strings.TrimSpace(p)
		if content == "" {
			continue
		}
		pages = append(pages, models.Page{PageNumber: len(pages) + 1, Content: content})
	}
	return pages
}

func proportionalSplit(text string, pages int) []string {
	runes := []rune(text)
	n := len(runes)
	if pages <= 1 || n == 0 {
		return []string{text}
	}

	breaks := paragraphBreakOffsets(text)
	bounds := make([]int, 0, pages+1)
	bounds = append(bounds, 0)
	for k := 1; k < pages; k++ {
		target := (k*n + pages/2) / pages
		prev := bounds[len(bounds)-1]
		b := snap(target, prev, n, breaks)
		if b < prev {
			b = prev
		}
		bounds = append(bounds, b)
	}
	bounds = append(bounds, n)

	out := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		out = append(out, string(runes[bounds[i]:bounds[i+1]]))
	}
	return out
}

// paragraphBreakOffsets returns the rune offsets just past every blank line.
func paragraphBreakOffsets(text string) []int {
	matches := paragraphBreak.FindAllStringIndex(text, -1)
	offsets := make([]int, 0, len(matches))
	byteOff, runeOff := 0, 0
	for _, m := range matches {
		runeOff += utf8.RuneCountInString(text[byteOff:m[1]])
		byteOff = m[1]
		offsets = append(offsets, runeOff)
	}
	return offsets
}

// snap returns the break nearest to target within snapRadius that lies
// strictly between prev and n, or target when there is none. Ties go to the
// earlier break.
func snap(target, prev, n int, breaks []int) int {
	best, bestDist := target, snapRadius+1
	for _, b := range breaks {
		if b <= prev || b >= n {
			continue
		}
		d := b - target
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}
