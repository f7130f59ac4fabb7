package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scanmark/scanmark/internal/auth"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

func handleInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, proto.InfoReply{APIVersion: proto.APIVersion})
	}
}

func handleLogin(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req proto.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "malformed login request"))
			return
		}
		if err := auth.CheckClientVersion(req.ClientMinAPI, req.ClientMaxAPI); err != nil {
			writeErr(c, err)
			return
		}
		token, err := auth.Login(gdb, req.Username, req.Password, req.Exclusive)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, proto.LoginReply{Token: token})
	}
}

func handleLogout(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req proto.LogoutRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				writeErr(c, proto.Errf(proto.ValidationFailed, "malformed logout request"))
				return
			}
		}
		if err := auth.Logout(gdb, bearerToken(c), req.RevokeToken); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleClear(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req proto.ClearRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "malformed clear request"))
			return
		}
		if err := auth.ForceClear(gdb, req.Username, req.Password); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
