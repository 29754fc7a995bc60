//go:build swagger

package main

// Register the generated OpenAPI spec when the swagger tag is on.
import _ "lexd/cmd/lexd/docs"
