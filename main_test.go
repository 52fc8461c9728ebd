package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gamma-omg/legal-rag/rag"
	"github.com/gamma-omg/legal-rag/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChat struct {
	mock.Mock
}

func (c *mockChat) Ask(ctx context.Context, query string) (rag.Answer, error) {
	args := c.Called(ctx, query)
	return args.Get(0).(rag.Answer), args.Error(1)
}

func (c *mockChat) Reset(ctx context.Context) error {
	return c.Called(ctx).Error(0)
}

func (c *mockChat) EnsureReady(ctx context.Context) (*rag.Index, error) {
	args := c.Called(ctx)
	idx, _ := args.Get(0).(*rag.Index)
	return idx, args.Error(1)
}

func Test_Chat(t *testing.T) {
	svc := new(mockChat)
	svc.On("Ask", mock.Anything, "What is stalking?").Return(rag.Answer{Text: "A pattern of behaviour.", Sources: []string{"pha.pdf"}}, nil)

	var out bytes.Buffer
	err := chat(context.Background(), svc, strings.NewReader("\nWhat is stalking?\nexit\nignored\n"), &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "A pattern of behaviour.\n\nSources: pha.pdf")
	svc.AssertNumberOfCalls(t, "Ask", 1)
}

func Test_Chat_ErrorsKeepLooping(t *testing.T) {
	svc := new(mockChat)
	svc.On("Ask", mock.Anything, "first").Return(rag.Answer{}, errors.New("provider down")).Once()
	svc.On("Ask", mock.Anything, "second").Return(rag.Answer{Text: "ok"}, nil).Once()

	var out bytes.Buffer
	err := chat(context.Background(), svc, strings.NewReader("first\nsecond\n"), &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Sorry")
	assert.Contains(t, out.String(), "ok\n")
	svc.AssertExpectations(t)
}

func Test_Chat_Reset(t *testing.T) {
	svc := new(mockChat)
	svc.On("Reset", mock.Anything).Return(nil).Once()
	svc.On("EnsureReady", mock.Anything).Return(&rag.Index{}, nil).Once()

	var out bytes.Buffer
	err := chat(context.Background(), svc, strings.NewReader("reset\nquit\n"), &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "rebuilt")
	svc.AssertExpectations(t)
}

func Test_Chat_ResetFails(t *testing.T) {
	svc := new(mockChat)
	svc.On("Reset", mock.Anything).Return(errors.New("permission denied"))

	err := chat(context.Background(), svc, strings.NewReader("reset\n"), &bytes.Buffer{})
	assert.Error(t, err)
}

func Test_RootCmd(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"ensure", "ask", "retrieve", "reset", "serve", "watch"}, names)
}

func Test_EnsureCmd_HashEmbedder(t *testing.T) {
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "stalking.txt"), []byte("Stalking is a criminal offence under the Protection from Harassment Act."), 0o644))

	dir := t.TempDir()
	cfgPath := writeConfig(t, "docs: "+docs+"\nindex_dir: "+dir+"\nembedding:\n  provider: hash\n  dimension: 64\n")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "ensure"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "index legal ready: 1 passages from 1 documents")
}

func Test_RetrieveCmd_K(t *testing.T) {
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "stalking.txt"), []byte("Stalking is a criminal offence."), 0o644))
	cfgPath := writeConfig(t, "docs: "+docs+"\nindex_dir: "+t.TempDir()+"\nembedding:\n  provider: hash\n")

	run := func(args ...string) (string, error) {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"--config", cfgPath, "retrieve"}, args...))
		err := root.Execute()
		return out.String(), err
	}

	out, err := run("stalking")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"file":"stalking.txt"`)

	_, err = run("stalking", "-k", "0")
	assert.ErrorIs(t, err, ragerr.ErrInvalidArgument)
}
