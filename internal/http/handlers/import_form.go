package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const importFormHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>Upload new File</title>
  </head>
  <body>
    <h1>Upload new File</h1>
    <form method="post" action="/file_import" enctype="multipart/form-data">
      <input type="file" name="file" accept=".json,application/json" />
      <input type="submit" value="Upload" />
    </form>
  </body>
</html>`

// ImportForm serves the browser upload form for POST /file_import.
func ImportForm(ctx *gin.Context) {
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", []byte(importFormHTML))
}
