// Package models holds the GORM row types of the receivables ledger and the
// forecasting tables. Repositories convert them to and from domain entities;
// nothing outside persistence imports this package.
package models
