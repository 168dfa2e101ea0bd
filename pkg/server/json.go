package server

import (
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

var jsonHandler = sonic.Config{
	UseNumber:  true,
	EscapeHTML: true,
}.Froze()

func init() {
	sonic.Pretouch(reflect.TypeOf(JSONResponse{}))
}

// JSONResponse is the envelope every admin endpoint answers with.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func fastJSONMarshal(v interface{}) ([]byte, error) {
	return jsonHandler.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v interface{}) error {
	return jsonHandler.Unmarshal(data, v)
}

func respond(c *gin.Context, code int, message string, data interface{}) {
	body, err := fastJSONMarshal(JSONResponse{Code: code, Message: message, Data: data})
	if err != nil {
		c.JSON(code, gin.H{"code": code, "message": message})
		return
	}
	c.Data(code, "application/json; charset=utf-8", body)
}
