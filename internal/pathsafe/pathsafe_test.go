package pathsafe_test

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/denisvmedia/dedupfs/internal/pathsafe"
)

func TestValidateLibraryRelativePath_RejectsUnsafe(t *testing.T) {
	c := qt.New(t)

	cases := []string{"../x", "a/../../x", "~/x", "$HOME/x", "/abs/x"}
	for _, raw := range cases {
		c.Run(raw, func(c *qt.C) {
			err := pathsafe.ValidateLibraryRelativePath(raw)
			c.Assert(errors.Is(err, pathsafe.ErrUnsafePath), qt.IsTrue)
		})
	}
}

func TestValidateLibraryRelativePath_AcceptsSafe(t *testing.T) {
	c := qt.New(t)

	for _, raw := range []string{"a/b/c.jpg", "file.txt", "nested/dir/file"} {
		c.Assert(pathsafe.ValidateLibraryRelativePath(raw), qt.IsNil)
	}
}

func TestResolveUnderRoot(t *testing.T) {
	c := qt.New(t)

	got, err := pathsafe.ResolveUnderRoot("/libraries/root1", "a/b.jpg")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "/libraries/root1/a/b.jpg")

	_, err = pathsafe.ResolveUnderRoot("/libraries/root1", "../root2/b.jpg")
	c.Assert(errors.Is(err, pathsafe.ErrUnsafePath), qt.IsTrue)
}
