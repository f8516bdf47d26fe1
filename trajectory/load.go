package trajectory

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"

	"github.com/clintpurser/leaphand/hand"
)

// Load reads a (T, 16) trajectory from path. The format follows the
// extension: .npy, .json or .csv. Shape problems wrap hand.ErrValidation.
func Load(path string) (hand.Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open trajectory")
	}
	defer f.Close()

	var rows [][]float64
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".npy":
		rows, err = ReadNPY(f)
	case ".json":
		rows, err = ReadJSON(f)
	case ".csv", ".txt":
		rows, err = ReadCSV(f)
	default:
		return nil, errors.Errorf("unsupported trajectory format %q", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return hand.NewTrajectory(rows)
}

// ReadNPY decodes a two-dimensional float32 or float64 NumPy array.
func ReadNPY(r io.Reader) ([][]float64, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, err
	}

	shape := npy.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, errors.Wrapf(hand.ErrValidation, "trajectory must be two-dimensional, got shape %v", shape)
	}
	if npy.Header.Descr.Fortran {
		return nil, errors.New("fortran-ordered arrays are not supported")
	}

	var flat []float64
	switch strings.TrimLeft(npy.Header.Descr.Type, "<>|=") {
	case "f8":
		if err := npy.Read(&flat); err != nil {
			return nil, err
		}
	case "f4":
		var f32 []float32
		if err := npy.Read(&f32); err != nil {
			return nil, err
		}
		flat = make([]float64, len(f32))
		for i, v := range f32 {
			flat[i] = float64(v)
		}
	default:
		return nil, errors.Errorf("unsupported array dtype %q", npy.Header.Descr.Type)
	}

	rows, cols := shape[0], shape[1]
	if len(flat) != rows*cols {
		return nil, errors.Wrapf(hand.ErrValidation, "array holds %d values, shape %v needs %d", len(flat), shape, rows*cols)
	}
	out := make([][]float64, rows)
	for t := range out {
		out[t] = flat[t*cols : (t+1)*cols]
	}
	return out, nil
}

// ReadJSON decodes an array of joint-angle arrays.
func ReadJSON(r io.Reader) ([][]float64, error) {
	var rows [][]float64
	if err := jsoniter.NewDecoder(r).Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadCSV decodes one frame per line. Lines starting with # are ignored.
func ReadCSV(r io.Reader) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	rows := make([][]float64, len(records))
	for t, rec := range records {
		rows[t] = make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.Wrapf(hand.ErrValidation, "frame %d column %d: %v", t, j, err)
			}
			rows[t][j] = v
		}
	}
	return rows, nil
}
