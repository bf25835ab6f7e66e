package postprocess

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Labels are the class names of a model in class index order
type Labels []string

// LoadLabels reads the labels used to train the Model from the given text file.
// It should contain one label per line.
func LoadLabels(file string) (Labels, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var labels Labels

	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return labels, nil
}

// Name returns the label for a class index, or the index itself when there
// is no label for it
func (l Labels) Name(idx int) string {

	if idx >= 0 && idx < len(l) && l[idx] != "" {
		return l[idx]
	}

	return strconv.Itoa(idx)
}
