// Package dataset читает артефакты pipeline для API: превью датасета
// (cleaned CSV или сырой канонический CSV) и сведения о модели.
//
// Пакет только читает data root и ничего в нём не меняет.
package dataset
