// Package httpapi exposes the keystore and truststore admin operations as a
// JSON REST surface. It is a thin layer: all validation and merge semantics
// live in the service packages, and field-level validation errors are
// rendered verbatim as a fieldErrors object.
package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/jellydator/validation"

	"github.com/sensiblebit/storekit/internal/keystore"
	"github.com/sensiblebit/storekit/internal/truststore"
	"github.com/sensiblebit/storekit/internal/uploads"
)

// Server holds the services behind the REST surface.
type Server struct {
	keystore   *keystore.Service
	truststore *truststore.Service
}

// NewServer creates the REST surface over the given services.
func NewServer(ks *keystore.Service, ts *truststore.Service) *Server {
	return &Server{keystore: ks, truststore: ts}
}

// Router builds the gin engine with all admin routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	ks := r.Group("/keystore")
	{
		ks.POST("/upload", s.uploadKeystore)
		ks.POST("/select", s.selectAlias)
		ks.GET("/entries", s.listKeystoreEntries)
		ks.DELETE("/entries/:alias", s.deleteKeystoreEntry)
	}
	ts := r.Group("/truststore")
	{
		ts.POST("/upload", s.uploadTruststore)
		ts.POST("/certificates", s.uploadCertificate)
		ts.GET("/aliases", s.listTruststoreAliases)
		ts.GET("/aliases/:alias", s.getTruststoreCertificate)
		ts.DELETE("/aliases/:alias", s.deleteTruststoreCertificate)
	}
	return r
}

func (s *Server) uploadKeystore(c *gin.Context) {
	data, filename, ok := readUploadFile(c)
	if !ok {
		return
	}
	result, err := s.keystore.Upload(data, filename, c.PostForm("format"), c.PostForm("password"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) selectAlias(c *gin.Context) {
	var in keystore.SelectAliasInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	result, err := s.keystore.SelectAlias(in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listKeystoreEntries(c *gin.Context) {
	entries, err := s.keystore.List()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) deleteKeystoreEntry(c *gin.Context) {
	if err := s.keystore.Delete(c.Param("alias")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) uploadTruststore(c *gin.Context) {
	data, filename, ok := readUploadFile(c)
	if !ok {
		return
	}
	report, err := s.truststore.Upload(data, filename, c.PostForm("format"), c.PostForm("password"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) uploadCertificate(c *gin.Context) {
	data, _, ok := readUploadFile(c)
	if !ok {
		return
	}
	alias, err := s.truststore.AddCertificate(data, c.PostForm("alias"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alias": alias})
}

func (s *Server) listTruststoreAliases(c *gin.Context) {
	aliases, err := s.truststore.Aliases()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, aliases)
}

func (s *Server) getTruststoreCertificate(c *gin.Context) {
	info, err := s.truststore.Certificate(c.Param("alias"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) deleteTruststoreCertificate(c *gin.Context) {
	if err := s.truststore.Delete(c.Param("alias")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// readUploadFile reads the multipart "file" part. On failure it writes the
// error response itself and reports false.
func readUploadFile(c *gin.Context) (data []byte, filename string, ok bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a file part is required: " + err.Error()})
		return nil, "", false
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading upload: " + err.Error()})
		return nil, "", false
	}
	defer f.Close()
	data, err = io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading upload: " + err.Error()})
		return nil, "", false
	}
	return data, fh.Filename, true
}

// writeError maps service errors onto HTTP responses: unresolvable state
// tokens are user-facing non-field errors, accumulated validation errors
// become a fieldErrors object, unknown aliases are not-found, and anything
// else is a fatal request failure.
func writeError(c *gin.Context, err error) {
	var fieldErrs validation.Errors
	switch {
	case errors.Is(err, uploads.ErrStateNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &fieldErrs):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"fieldErrors": fieldErrs})
	case errors.Is(err, keystore.ErrEntryNotFound), errors.Is(err, truststore.ErrAliasNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
