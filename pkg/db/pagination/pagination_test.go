package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, PageSize: DefaultPageSize}, Pagination{}.Normalize())
	assert.Equal(t, Pagination{Page: 3, PageSize: MaxPageSize}, Pagination{Page: 3, PageSize: 1000}.Normalize())
}

func TestInfoHasMore(t *testing.T) {
	p := Pagination{Page: 2, PageSize: 10}
	assert.True(t, p.Info(21).HasMore)
	assert.False(t, p.Info(20).HasMore)
}
