package ocr

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRunner struct {
	calls  atomic.Int32
	args   [][]string
	stdout map[string]string
	stderr string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls.Add(1)
	f.args = append(f.args, append([]string{name}, args...))
	if f.err != nil {
		return nil, []byte(f.stderr), f.err
	}
	key := args[len(args)-1]
	return []byte(f.stdout[key]), []byte(f.stderr), nil
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t2480\t3508\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t96.1\tProprietário:\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t50\t20\t91.0\tACME\n" +
	"5\t1\t1\t1\t1\t3\t130\t10\t50\t20\t12.5\t~~\n" +
	"5\t1\t1\t1\t1\t4\t190\t10\t50\t20\t88.0\tLTDA\n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t50\t20\t93.0\tCNPJ:\n" +
	"5\t1\t1\t1\t2\t2\t70\t40\t50\t20\t59.9\t12.345.678/0001-99\n" +
	"5\t1\t2\t1\t1\t1\t10\t90\t50\t20\t97.0\tPlaca:\n" +
	"5\t1\t2\t1\t1\t2\t70\t90\t50\t20\t95.0\tABC1D23\n"

func TestParseTSVKeepsOnlyWords(t *testing.T) {
	tokens, err := ParseTSV([]byte(sampleTSV))
	require.NoError(t, err)
	require.Len(t, tokens, 8)

	assert.Equal(t, "Proprietário:", tokens[0].Text)
	assert.InDelta(t, 0.961, tokens[0].Confidence, 1e-9)
	assert.Equal(t, 2, tokens[6].Block)
}

func TestAssembleDropsLowConfidenceTokens(t *testing.T) {
	tokens, err := ParseTSV([]byte(sampleTSV))
	require.NoError(t, err)

	page := Assemble(tokens, 0.6)

	assert.Equal(t, "Proprietário: ACME LTDA\nCNPJ:\n\nPlaca: ABC1D23", page.Text)
	assert.Equal(t, 6, page.Kept)
	assert.Equal(t, 2, page.Dropped)
}

func TestAssembleLowerThresholdKeepsMore(t *testing.T) {
	tokens, err := ParseTSV([]byte(sampleTSV))
	require.NoError(t, err)

	page := Assemble(tokens, 0.5)
	assert.Contains(t, page.Text, "CNPJ: 12.345.678/0001-99")
	assert.Equal(t, 1, page.Dropped)
}

func TestTesseractRecognizeBuildsArgs(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{"tsv": sampleTSV}}
	engine := NewTesseract(TesseractConfig{Languages: "por+eng", PSM: 6}, runner)

	page, err := engine.Recognize(context.Background(), "/tmp/page-1.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(page.Text, "Proprietário: ACME LTDA"))

	require.Len(t, runner.args, 1)
	assert.Equal(t, []string{"tesseract", "/tmp/page-1.png", "stdout", "-l", "por+eng", "--psm", "6", "tsv"}, runner.args[0])
}

func TestTesseractRecognizeSurfacesStderr(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1"), stderr: "Error opening data file por.traineddata"}
	engine := NewTesseract(TesseractConfig{}, runner)

	_, err := engine.Recognize(context.Background(), "/tmp/page-1.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "por.traineddata")
}

func TestLazyTesseractInitialisesOnce(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{
		"--list-langs": "List of available languages in \"/usr/share/tessdata/\" (3):\neng\nosd\npor\n",
	}}
	p := NewLazyTesseract(TesseractConfig{Languages: "por+eng"}, 1, runner, zaptest.NewLogger(t))

	e1, err := p.Engine(context.Background())
	require.NoError(t, err)
	e2, err := p.Engine(context.Background())
	require.NoError(t, err)

	assert.Same(t, e1, e2)
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, "tesseract", e1.Name())
}

func TestLazyTesseractSkipsMissingSecondaryLanguage(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{"--list-langs": "por\nosd\n"}}
	p := NewLazyTesseract(TesseractConfig{Languages: "por+eng"}, 0, runner, zaptest.NewLogger(t))

	e, err := p.Engine(context.Background())
	require.NoError(t, err)

	tess, ok := e.(*Tesseract)
	require.True(t, ok)
	assert.Equal(t, "por", tess.cfg.Languages)
}

func TestLazyTesseractUnavailable(t *testing.T) {
	t.Run("binary missing", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("executable file not found in $PATH")}
		p := NewLazyTesseract(TesseractConfig{}, 1, runner, zaptest.NewLogger(t))

		e, err := p.Engine(context.Background())
		assert.Nil(t, e)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("primary language missing", func(t *testing.T) {
		runner := &fakeRunner{stdout: map[string]string{"--list-langs": "eng\nosd\n"}}
		p := NewLazyTesseract(TesseractConfig{Languages: "por"}, 1, runner, zaptest.NewLogger(t))

		_, err := p.Engine(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestStaticProvider(t *testing.T) {
	_, err := Static{}.Engine(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	engine := NewTesseract(TesseractConfig{}, &fakeRunner{})
	got, err := Static{E: engine}.Engine(context.Background())
	require.NoError(t, err)
	assert.Same(t, engine, got)
}
