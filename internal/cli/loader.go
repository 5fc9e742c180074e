package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/roach88/querybuilder/internal/catalog"
	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/repository"
)

// Error codes for loading input.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeReadFailed = "E002" // File read error
	ErrCodeCatalogue  = "E004" // Catalogue load failed
	ErrCodeNotFound   = "E005" // Path or saved query not found
	ErrCodeStore      = "E006" // Repository error
	ErrCodeNoDatabase = "E007" // No database configured
)

// Error codes for problems found in a built tree.
const (
	ErrCodeUnknownProperty = "E201" // property not in the catalogue
	ErrCodeInvalidEntry    = "E202" // entry kept as written
	ErrCodeIncompleteLink  = "E203" // link or merge group without children
)

// stdinPath names standard input as a document argument.
const stdinPath = "-"

// LoadError is an input error with a CLI error code.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// readDocument reads path, or stdin when path is "-".
func readDocument(path string, stdin io.Reader) ([]byte, error) {
	if path == stdinPath {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading stdin: %v", err)}
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("query file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return data, nil
}

// loadQuery reads and decodes the query document at path.
func loadQuery(path string, stdin io.Reader) (*queryspec.Query, error) {
	data, err := readDocument(path, stdin)
	if err != nil {
		return nil, err
	}
	q, err := queryspec.Decode(data)
	if err != nil {
		return nil, &LoadError{Code: queryspec.ErrInvalidJSON, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return q, nil
}

// loadCatalogue loads the type catalogue at path. An empty path gives an
// empty catalogue, in which every property is unknown.
func loadCatalogue(path string, logger *slog.Logger) (*catalog.Catalogue, error) {
	c := catalog.New(catalog.WithLogger(logger))
	if path == "" {
		return c, nil
	}
	types, err := catalog.LoadFile(path)
	if err != nil {
		c.Close()
		return nil, &LoadError{Code: ErrCodeCatalogue, Message: err.Error()}
	}
	c.Put(types...)
	logger.Debug("catalogue loaded", "path", path, "types", len(types))
	return c, nil
}

// openRepository opens the database named by --db.
func openRepository(opts *RootOptions, logger *slog.Logger, extra ...repository.Option) (*repository.Repository, error) {
	if opts.DB == "" {
		return nil, &LoadError{Code: ErrCodeNoDatabase, Message: "no database: set --db or " + EnvDB}
	}
	repo, err := repository.Open(opts.DB, append([]repository.Option{repository.WithLogger(logger)}, extra...)...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	return repo, nil
}

// loadFailure prints err and returns the matching ExitError.
func loadFailure(f *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return f.fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
	}
	return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}
