package customize

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// SafeSuffix marks a file as the committed, secret free source of a customized file
const SafeSuffix = ".safe"

var (
	// ErrNotSafeFile is returned if a customization target does not end in SafeSuffix
	ErrNotSafeFile = errors.New("customization target must end in " + SafeSuffix)
	// ErrInvalidFormat is returned if the customizations file is not a map of file to replacements
	ErrInvalidFormat = errors.New("customizations must map a .safe file to old: new replacements")
)

// Replacement replaces every occurrence of Old with New
type Replacement struct {
	Old string
	New string
}

// File is a single .safe file and the replacements applied to it, in order
type File struct {
	Path         string
	Replacements []Replacement
}

// Output returns the path the customized file is written to
func (f File) Output() string {
	return strings.TrimSuffix(f.Path, SafeSuffix)
}

// Customizations are all files to customize, in the order they appear in the customizations file
type Customizations []File

// Load reads a customizations file. A missing file yields no customizations.
func Load(path string) (Customizations, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("no customizations file %v found, skipping customization", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read customizations file %v: %w", path, err)
	}
	return Parse(b)
}

// Parse parses customizations, keeping file and replacement order
func Parse(b []byte) (Customizations, error) {
	var files yaml.MapSlice
	if err := yaml.Unmarshal(b, &files); err != nil {
		return nil, fmt.Errorf("failed to parse customizations: %w", err)
	}

	var output Customizations
	for _, item := range files {
		path, ok := item.Key.(string)
		if !ok {
			return nil, fmt.Errorf("file name %v: %w", item.Key, ErrInvalidFormat)
		}
		if !strings.HasSuffix(path, SafeSuffix) {
			return nil, fmt.Errorf("'%v': %w", path, ErrNotSafeFile)
		}

		replacements, ok := item.Value.(yaml.MapSlice)
		if !ok && item.Value != nil {
			return nil, fmt.Errorf("'%v': %w", path, ErrInvalidFormat)
		}
		file := File{Path: path}
		for _, r := range replacements {
			old := fmt.Sprint(r.Key)
			if old == "" {
				return nil, fmt.Errorf("'%v' has an empty replacement key: %w", path, ErrInvalidFormat)
			}
			newValue := ""
			if r.Value != nil {
				newValue = fmt.Sprint(r.Value)
			}
			file.Replacements = append(file.Replacements, Replacement{Old: old, New: newValue})
		}
		output = append(output, file)
	}
	return output, nil
}

// Apply reads each .safe file, applies its replacements in order and writes the result next to it
// without the .safe suffix. It returns the paths written.
func Apply(c Customizations) ([]string, error) {
	var written []string
	for _, file := range c {
		if !strings.HasSuffix(file.Path, SafeSuffix) {
			return written, fmt.Errorf("'%v': %w", file.Path, ErrNotSafeFile)
		}

		info, err := os.Stat(file.Path)
		if err != nil {
			return written, fmt.Errorf("failed to stat %v: %w", file.Path, err)
		}
		b, err := os.ReadFile(file.Path)
		if err != nil {
			return written, fmt.Errorf("failed to read %v: %w", file.Path, err)
		}

		contents := string(b)
		for _, r := range file.Replacements {
			contents = strings.ReplaceAll(contents, r.Old, r.New)
		}

		if err := os.WriteFile(file.Output(), []byte(contents), info.Mode().Perm()); err != nil {
			return written, fmt.Errorf("failed to write %v: %w", file.Output(), err)
		}
		log.Infof("customized %v from %v (%v replacements)", file.Output(), file.Path, len(file.Replacements))
		written = append(written, file.Output())
	}
	return written, nil
}

// FileCustomizer loads and applies the customizations file at Path
type FileCustomizer struct {
	Path string
}

// Customize applies the customizations file, returning the written paths
func (f *FileCustomizer) Customize() ([]string, error) {
	c, err := Load(f.Path)
	if err != nil {
		return nil, err
	}
	return Apply(c)
}
