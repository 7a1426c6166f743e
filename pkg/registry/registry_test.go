package registry

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/providers"
)

func descriptorDoc(name, keyword string) []byte {
	return []byte(`
metadata:
  name: ` + name + `
  description: Test notebooklet
  default_options:
    - step
  keywords:
    - ` + keyword + `
`)
}

type testNotebooklet struct {
	notebooklet.Base
}

func (n *testNotebooklet) Run(_ context.Context, params notebooklet.RunParams) (notebooklet.Result, error) {
	if err := n.Begin(params); err != nil {
		return nil, err
	}

	return nil, nil
}

func factoryFor(doc []byte) Factory {
	return func(env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
		meta, err := metadata.Parse(doc, "test")
		if err != nil {
			return nil, err
		}

		base, err := notebooklet.NewBase(meta, env)
		if err != nil {
			return nil, err
		}

		return &testNotebooklet{Base: base}, nil
	}
}

func testLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func testCatalog() []Descriptor {
	hostDoc := descriptorDoc("HostThing", "host")
	ipDoc := descriptorDoc("IpThing", "address")

	return []Descriptor{
		{Path: "azsent.host.HostThing", Metadata: hostDoc, New: factoryFor(hostDoc)},
		{Path: "azsent.network.IpThing", Metadata: ipDoc, New: factoryFor(ipDoc)},
	}
}

func TestDiscoverRoundTrip(t *testing.T) {
	reg := New(testLog())
	assert.Equal(t, StateUninitialized, reg.State())

	require.NoError(t, reg.Discover(testCatalog()))
	assert.Equal(t, StateReady, reg.State())
	assert.Equal(t, 2, reg.Count())

	entry, ok := reg.Get("azsent.host.HostThing")
	require.True(t, ok)
	assert.Equal(t, "HostThing", entry.Meta.Name)

	_, ok = reg.Get("azsent.host.Missing")
	assert.False(t, ok)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "azsent.host.HostThing", all[0].Path)
	assert.Equal(t, "azsent.network.IpThing", all[1].Path)
}

func TestDiscoverSkipsBadEntries(t *testing.T) {
	good := descriptorDoc("Good", "host")

	catalog := []Descriptor{
		{Path: "ns.Good", Metadata: good, New: factoryFor(good)},
		{Path: "ns.NoName", Metadata: []byte("metadata:\n  description: nameless"), New: factoryFor(good)},
		{Path: "ns.NoFactory", Metadata: good, New: nil},
		{Path: "ns.Good", Metadata: good, New: factoryFor(good)},
	}

	reg := New(testLog())
	require.NoError(t, reg.Discover(catalog))

	assert.Equal(t, 1, reg.Count())
}

func TestDiscoverReplacesIndex(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Discover(testCatalog()))
	require.Equal(t, 2, reg.Count())

	single := descriptorDoc("Solo", "solo")
	require.NoError(t, reg.Discover([]Descriptor{
		{Path: "ns.Solo", Metadata: single, New: factoryFor(single)},
	}))

	assert.Equal(t, 1, reg.Count())
	_, ok := reg.Get("azsent.host.HostThing")
	assert.False(t, ok)
}

func TestBranch(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Discover(testCatalog()))

	node, ok := reg.Branch("azsent")
	require.True(t, ok)
	assert.Len(t, node.Children, 2)

	leaf, ok := reg.Branch("azsent.host")
	require.True(t, ok)
	assert.Contains(t, leaf.Entries, "HostThing")

	_, ok = reg.Branch("azsent.nothere")
	assert.False(t, ok)

	root, ok := reg.Branch("")
	require.True(t, ok)
	assert.Contains(t, root.Children, "azsent")
}

func TestFindRanked(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Discover(testCatalog()))

	matches := reg.Find("host", false)
	require.Len(t, matches, 1)
	assert.Equal(t, "azsent.host.HostThing", matches[0].Entry.Path)

	// Both match "test" (description), only one matches "host" too.
	matches = reg.Find("test host", false)
	require.Len(t, matches, 2)
	assert.Equal(t, "azsent.host.HostThing", matches[0].Entry.Path)
	assert.Equal(t, 2, matches[0].Score)
	assert.Equal(t, 1, matches[1].Score)

	// Full match drops the partial hit.
	matches = reg.Find("test host", true)
	require.Len(t, matches, 1)
}

func TestInstantiate(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Discover(testCatalog()))

	log := testLog()
	set := providers.NewSet(log)
	env := &notebooklet.Environment{Providers: set, Log: log, Silent: true}

	instance, err := reg.Instantiate("azsent.host.HostThing", env)
	require.NoError(t, err)
	assert.Equal(t, "HostThing", instance.Name())

	_, err = reg.Instantiate("azsent.host.Missing", env)
	assert.Error(t, err)
}
