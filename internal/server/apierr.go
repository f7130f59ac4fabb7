package server

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/scanmark/scanmark/internal/proto"
)

// writeErr renders any error as the protocol's JSON error body. The
// status comes from the error's Kind; untyped errors become Internal
// and are logged, since their text is not for clients.
func writeErr(c *gin.Context, err error) {
	var pe *proto.Error
	if !errors.As(err, &pe) {
		log.Printf("server: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		pe = &proto.Error{Kind: proto.Internal, Msg: "internal error"}
	}
	c.AbortWithStatusJSON(pe.Kind.HTTPStatus(), pe)
}
