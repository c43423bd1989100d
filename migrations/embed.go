package main

import (
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// migrationNamePattern documents the accepted filename shape:
// a three-digit sequence, a snake_case name, and an up or down direction.
const migrationNamePattern = "001_name.up.sql / 001_name.down.sql"

var (
	// ErrNoMigrations indicates the migration source holds no SQL files at all.
	ErrNoMigrations = errors.New("no migration files found")

	// ErrBadMigrationName indicates a SQL file that does not follow the
	// naming standard. Misnamed files are rejected outright instead of
	// skipped: a silently ignored migration is how schema drift starts.
	ErrBadMigrationName = errors.New("migration filename does not match naming standard")

	// ErrUnpairedMigration indicates an up migration without its down
	// counterpart or vice versa.
	ErrUnpairedMigration = errors.New("unpaired migration")

	// ErrSequenceGap indicates the migration sequence does not run 001..N
	// without holes.
	ErrSequenceGap = errors.New("gap in migration sequence")
)

type (
	// migrationFile is one parsed migration file.
	migrationFile struct {
		Sequence  int
		Name      string
		Direction string // "up" or "down"
		Filename  string
		Checksum  string // SHA-256 of the file content, hex
	}

	// migrationSet is the parsed, checksummed view of a migration source.
	//
	// The set is built once at load: filenames are parsed, content is read
	// and hashed, and misnamed SQL files fail the load. Validate then checks
	// the structural invariants (pairing, contiguous sequence) that the
	// per-file parse cannot see.
	migrationSet struct {
		fsys  fs.FS
		files []migrationFile
	}
)

// loadMigrationSet parses every SQL file in fsys into a migrationSet.
// A nil fsys loads the migrations embedded in this binary.
//
// Non-SQL entries are ignored (the embedded FS only ever holds SQL, but an
// injected test FS may not). SQL files with malformed names are an error,
// not a skip.
func loadMigrationSet(fsys fs.FS) (*migrationSet, error) {
	if fsys == nil {
		fsys = embeddedMigrations
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	set := &migrationSet{fsys: fsys}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}

		file, err := parseMigrationFilename(entry.Name())
		if err != nil {
			return nil, err
		}

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		sum := sha256.Sum256(content)
		file.Checksum = fmt.Sprintf("%x", sum)

		set.files = append(set.files, file)
	}

	if len(set.files) == 0 {
		return nil, ErrNoMigrations
	}

	// Lexicographic order is execution order under the naming standard.
	sort.Slice(set.files, func(i, j int) bool {
		return set.files[i].Filename < set.files[j].Filename
	})

	return set, nil
}

// parseMigrationFilename splits a filename into its sequence, name, and
// direction. The shape is strict: NNN_name.up.sql or NNN_name.down.sql.
func parseMigrationFilename(filename string) (migrationFile, error) {
	base, ok := strings.CutSuffix(filename, ".sql")
	if !ok {
		return migrationFile{}, fmt.Errorf("%w: %s (expected %s)",
			ErrBadMigrationName, filename, migrationNamePattern)
	}

	var direction string

	switch {
	case strings.HasSuffix(base, ".up"):
		direction = "up"
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		direction = "down"
		base = strings.TrimSuffix(base, ".down")
	default:
		return migrationFile{}, fmt.Errorf("%w: %s (expected %s)",
			ErrBadMigrationName, filename, migrationNamePattern)
	}

	seq, name, ok := strings.Cut(base, "_")
	if !ok || len(seq) != 3 || name == "" {
		return migrationFile{}, fmt.Errorf("%w: %s (expected %s)",
			ErrBadMigrationName, filename, migrationNamePattern)
	}

	sequence, err := strconv.Atoi(seq)
	if err != nil {
		return migrationFile{}, fmt.Errorf("%w: %s (sequence %q is not numeric)",
			ErrBadMigrationName, filename, seq)
	}

	for _, r := range name {
		validRune := r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !validRune {
			return migrationFile{}, fmt.Errorf("%w: %s (name %q has invalid characters)",
				ErrBadMigrationName, filename, name)
		}
	}

	return migrationFile{
		Sequence:  sequence,
		Name:      name,
		Direction: direction,
		Filename:  filename,
	}, nil
}

// Validate checks the structural invariants of the set: every migration has
// both directions, and sequences run 001..N without gaps. Load-time parsing
// already guaranteed well-formed names and readable content.
func (s *migrationSet) Validate() error {
	type pair struct{ up, down bool }

	pairs := make(map[int]*pair)
	names := make(map[int]string)

	for _, file := range s.files {
		if pairs[file.Sequence] == nil {
			pairs[file.Sequence] = &pair{}
			names[file.Sequence] = file.Name
		}

		if file.Direction == "up" {
			pairs[file.Sequence].up = true
		} else {
			pairs[file.Sequence].down = true
		}
	}

	sequences := make([]int, 0, len(pairs))
	for seq := range pairs {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	expected := 1

	for _, seq := range sequences {
		if seq != expected {
			return fmt.Errorf("%w: expected %03d, found %03d", ErrSequenceGap, expected, seq)
		}

		p := pairs[seq]
		if !p.up {
			return fmt.Errorf("%w: %03d_%s has no up migration", ErrUnpairedMigration, seq, names[seq])
		}

		if !p.down {
			return fmt.Errorf("%w: %03d_%s has no down migration", ErrUnpairedMigration, seq, names[seq])
		}

		expected++
	}

	return nil
}

// FS returns the underlying filesystem for handing to a migration driver.
func (s *migrationSet) FS() fs.FS {
	return s.fsys
}

// Files returns the migration filenames in execution order.
func (s *migrationSet) Files() []string {
	files := make([]string, len(s.files))
	for i, f := range s.files {
		files[i] = f.Filename
	}

	return files
}

// Content returns the raw content of one migration file.
func (s *migrationSet) Content(filename string) ([]byte, error) {
	return fs.ReadFile(s.fsys, filename)
}

// MaxSequence returns the highest migration sequence in the set, which is
// the schema version this binary can bring a database up to.
func (s *migrationSet) MaxSequence() int {
	maxSeq := 0

	for _, f := range s.files {
		if f.Sequence > maxSeq {
			maxSeq = f.Sequence
		}
	}

	return maxSeq
}

// Fingerprint returns a stable digest over the whole set: filenames and
// content checksums in execution order. Two binaries with the same
// fingerprint apply byte-identical schema changes; the runner logs it at
// startup so deployments can be compared.
func (s *migrationSet) Fingerprint() string {
	h := sha256.New()

	for _, f := range s.files {
		fmt.Fprintf(h, "%s:%s\n", f.Filename, f.Checksum)
	}

	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
