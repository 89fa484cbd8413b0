package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedExtensionsAgreeWithFormatMapping(t *testing.T) {
	for ext := range AllowedExtensions {
		assert.NotEmpty(t, MapExtToFormat(ext), "allowed extension %q must map to a format", ext)
	}
	for _, ext := range []string{"pdf", "jpg", "jpeg", "png", "tif", "tiff", "bmp"} {
		_, ok := AllowedExtensions[ext]
		assert.True(t, ok, "mappable extension %q must be allowed for ingestion", ext)
	}
}

func TestNormalizeExt(t *testing.T) {
	assert.Equal(t, "pdf", NormalizeExt(".PDF"))
	assert.Equal(t, "tiff", NormalizeExt("TIFF"))
}

func TestMapExtToFormat(t *testing.T) {
	assert.Equal(t, PDF, MapExtToFormat(".pdf"))
	assert.Equal(t, IMAGE, MapExtToFormat("tif"))
	assert.Equal(t, IMAGE, MapExtToFormat(".BMP"))
	assert.Empty(t, MapExtToFormat(".docx"))
}
