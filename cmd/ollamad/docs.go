package main

// General API documentation for swaggo. Run `swag init` to regenerate docs.
//
// @title           ollamad API
// @version         1.0
// @description     HTTP control plane for a local pool of Ollama inference workers.
//
// @contact.name   ollamad maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
