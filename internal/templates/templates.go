package templates

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/trashcan/teslacam-stack/internal/config"
	"github.com/trashcan/teslacam-stack/internal/instances"
)

const (
	// BootstrapFilename is the executable the provided.al2 lambda runtime starts
	BootstrapFilename = "bootstrap"
	// DefaultLambdaZipFilename is the default name of the packaged lambda
	DefaultLambdaZipFilename = "teslacam_lambda.zip"

	dirPerm        = 0755
	filePerm       = 0644
	executablePerm = 0755
)

var (
	// ErrTemplateExecute is returned if there is an error executing template
	ErrTemplateExecute = errors.New("error executing template")
	// ErrMissingBootstrap is returned if the code directory has no bootstrap executable
	ErrMissingBootstrap = errors.New("code directory is missing the lambda bootstrap executable")
)

// UserData contains all of the values available to the user data template
type UserData struct {
	// Args are the values returned by the event filter
	Args []string
	// Folder is the first filter value, the uploaded TeslaCam folder
	Folder string
	// Config is the lambda configuration
	Config *config.Lambda
	// InstanceStore is whether the instance type has local nvme storage to process video on
	InstanceStore bool
}

// NewUserData returns the template values for a launch triggered with the given filter values
func NewUserData(c *config.Lambda, args []string) UserData {
	data := UserData{
		Args:          args,
		Config:        c,
		InstanceStore: instances.Supported.HasInstanceStore(c.InstanceType),
	}
	if len(args) > 0 {
		data.Folder = args[0]
	}
	return data
}

// RenderUserData renders the user data template, which uses <% %> delimiters so it can carry shell
// syntax untouched
func RenderUserData(templateStr string, data UserData) (string, error) {
	output, err := renderTemplate(templateStr, data)
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// Package replaces deployDir with a copy of codeDir, normalizes permissions (directories 0755, files
// 0644, bootstrap 0755) and zips the result to zipPath
func Package(codeDir, deployDir, zipPath string) error {
	if _, err := os.Stat(filepath.Join(codeDir, BootstrapFilename)); err != nil {
		return fmt.Errorf("'%v': %w", codeDir, ErrMissingBootstrap)
	}

	if err := os.RemoveAll(deployDir); err != nil {
		return fmt.Errorf("failed to clean deploy dir %v: %w", deployDir, err)
	}
	files, err := copyTree(codeDir, deployDir)
	if err != nil {
		return fmt.Errorf("failed to copy %v to %v: %w", codeDir, deployDir, err)
	}

	if err := os.MkdirAll(filepath.Dir(zipPath), dirPerm); err != nil {
		return err
	}
	if err := zipFiles(zipPath, deployDir, files); err != nil {
		return fmt.Errorf("failed to zip %v: %w", deployDir, err)
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return err
	}
	log.Infof("packaged %v files from %v into %v (%v)", len(files), codeDir, zipPath, humanize.Bytes(uint64(info.Size())))
	return nil
}

func renderTemplate(templateStr string, params interface{}) ([]byte, error) {
	temp, err := template.New("templates").Delims("<%", "%>").Option("missingkey=error").Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	buffer := new(bytes.Buffer)
	if err = temp.Execute(buffer, params); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrTemplateExecute)
	}

	outputBytes, err := io.ReadAll(buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated templates: %w", err)
	}

	return outputBytes, nil
}

// copyTree copies src into dst and returns the copied file paths relative to dst
func copyTree(src, dst string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if err := os.MkdirAll(target, dirPerm); err != nil {
				return err
			}
			return os.Chmod(target, dirPerm)
		}

		perm := os.FileMode(filePerm)
		if rel == BootstrapFilename {
			perm = executablePerm
		}
		if err := copyFile(path, target, perm); err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}

func zipFiles(filename, baseDir string, files []string) error {
	newFile, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		_ = newFile.Close()
	}()

	zipWriter := zip.NewWriter(newFile)
	defer func() {
		_ = zipWriter.Close()
	}()

	for _, file := range files {
		if err := addZipFile(zipWriter, baseDir, file); err != nil {
			return err
		}
	}
	return zipWriter.Close()
}

func addZipFile(zipWriter *zip.Writer, baseDir, file string) error {
	zipfile, err := os.Open(filepath.Join(baseDir, file))
	if err != nil {
		return err
	}
	defer func() {
		_ = zipfile.Close()
	}()

	info, err := zipfile.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = filepath.ToSlash(file)
	header.Method = zip.Deflate

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, zipfile)
	return err
}
