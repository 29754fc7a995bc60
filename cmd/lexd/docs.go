package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           lexd supervisor API
// @version         1.0
// @description     Operator HTTP surface for the model lifecycle supervisor.
//
// @contact.name   lexd maintainers
// @contact.url    https://github.com/your-org/lexd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
