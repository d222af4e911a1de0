// Package api provides the REST API for querying indexed CID mappings
// @title IPCM Indexer API
// @version 1.0
// @description REST API for querying NFT CID mapping history indexed from the chain
// @contact.name API Support
// @contact.url https://github.com/octopus-project/ipcm-indexer
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api
