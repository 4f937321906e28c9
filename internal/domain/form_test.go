package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldDefinition_MaxFiles(t *testing.T) {
	tests := []struct {
		name string
		file *FileConstraints
		want int
	}{
		{"no constraints", nil, 1},
		{"single", &FileConstraints{}, 1},
		{"multiple", &FileConstraints{Multiple: true}, 0},
		{"explicit count", &FileConstraints{Multiple: true, MaxCount: 3}, 3},
		{"count without multiple", &FileConstraints{MaxCount: 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &FieldDefinition{Name: "brief", Kind: KindFile, File: tt.file}
			assert.Equal(t, tt.want, f.MaxFiles())
		})
	}
}
