//go:build !embed_model

package embedder

import "io/fs"

var embeddedModelFS fs.FS

const hasEmbeddedModel = false
