// Package orchestrator ведёт один запуск pipeline от upload до готового
// inference worker'а.
//
// Orchestrator отвечает за:
//   - run token: одновременно выполняется не больше одного run
//   - канонизацию имени загруженного файла
//   - последовательный запуск stage'ей с проверкой артефактов
//   - перезапуск inference worker'а и readiness probe
//   - запись каждого перехода в tracker
//   - историю запусков (RunStore)
//
// Run выполняется в фоне на пуле из одного worker'а; Submit возвращается
// сразу после постановки run. Любая ошибка внутри run превращается
// в error фазы, процесс не падает.
package orchestrator
