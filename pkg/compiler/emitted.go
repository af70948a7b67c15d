package compiler

import "path/filepath"

// Compilation is the record of what a build wrote.
type Compilation struct {
	OutputPath string
	Chunks     []Chunk
	// Assets lists every file written to OutputPath, in emission order.
	Assets []string
}

// Chunk is a group of output files produced from one entry point or split
// point.
type Chunk struct {
	ID      string
	Name    string
	Files   []string
	Initial bool
}

// EmittedFile describes one output file of a build.
type EmittedFile struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	File      string `json:"file"`
	Extension string `json:"extension"`
	Initial   bool   `json:"initial"`
	Asset     bool   `json:"asset,omitempty"`
}

// EmittedFiles lists the files of a compilation: chunk files first, each once,
// followed by the remaining assets.
func EmittedFiles(c *Compilation) []EmittedFile {
	if c == nil {
		return nil
	}

	var files []EmittedFile
	seen := make(map[string]bool)

	for _, chunk := range c.Chunks {
		for _, file := range chunk.Files {
			if seen[file] {
				continue
			}
			seen[file] = true
			files = append(files, EmittedFile{
				ID:        chunk.ID,
				Name:      chunk.Name,
				File:      file,
				Extension: filepath.Ext(file),
				Initial:   chunk.Initial,
			})
		}
	}

	for _, file := range c.Assets {
		if seen[file] {
			continue
		}
		seen[file] = true
		files = append(files, EmittedFile{
			File:      file,
			Extension: filepath.Ext(file),
			Asset:     true,
		})
	}

	return files
}
