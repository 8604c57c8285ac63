package client

import (
	"roomly/pkg/logger"
)

type Client struct {
	Mongo *MongoClient
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) GracefulShutdown(log *logger.Logger) {
	if c.Mongo != nil {
		c.Mongo.Disconnect(log)
	}
}
